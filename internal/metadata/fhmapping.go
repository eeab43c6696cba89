package metadata

import (
	"fmt"
	"hash/fnv"

	"github.com/zlomekfs/zfsd/internal/codec"
)

// fhMappingPayloadSize is the fixed payload width of one fh_mapping slot:
// master_fh (20 bytes) -> local_fh (20 bytes).
const fhMappingPayloadSize = 20 + 20

type fhMappingRecord struct {
	Master codec.FileHandle
	Local  codec.FileHandle
}

func (r fhMappingRecord) marshal() ([]byte, error) {
	b := codec.NewEncoder()
	if err := r.Master.Marshal(b); err != nil {
		return nil, err
	}
	if err := r.Local.Marshal(b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func (r *fhMappingRecord) unmarshal(payload []byte) error {
	dec := codec.NewDecoder(payload)
	if err := r.Master.Unmarshal(dec); err != nil {
		return err
	}
	return r.Local.Unmarshal(dec)
}

func fhHash(fh codec.FileHandle) uint64 {
	h := fnv.New64a()
	var b [20]byte
	b[0], b[1], b[2], b[3] = byte(fh.SID), byte(fh.SID>>8), byte(fh.SID>>16), byte(fh.SID>>24)
	b[4], b[5], b[6], b[7] = byte(fh.VID), byte(fh.VID>>8), byte(fh.VID>>16), byte(fh.VID>>24)
	b[8], b[9], b[10], b[11] = byte(fh.Dev), byte(fh.Dev>>8), byte(fh.Dev>>16), byte(fh.Dev>>24)
	b[12], b[13], b[14], b[15] = byte(fh.Ino), byte(fh.Ino>>8), byte(fh.Ino>>16), byte(fh.Ino>>24)
	b[16], b[17], b[18], b[19] = byte(fh.Gen), byte(fh.Gen>>8), byte(fh.Gen>>16), byte(fh.Gen>>24)
	h.Write(b[:])
	return h.Sum64()
}

func matchesMaster(master codec.FileHandle) func([]byte) bool {
	return func(payload []byte) bool {
		var r fhMappingRecord
		if err := r.unmarshal(payload); err != nil {
			return false
		}
		return r.Master.Equal(master)
	}
}

// LookupFHMapping translates a master_fh to the local FH it was last bound
// to, spec.md §3 "FH mapping".
func (s *Store) LookupFHMapping(master codec.FileHandle) (codec.FileHandle, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found, payload, err := s.fhMapTable.Find(fhHash(master), matchesMaster(master))
	if err != nil {
		return codec.FileHandle{}, false, s.fail(err)
	}
	if !found {
		return codec.FileHandle{}, false, nil
	}
	var r fhMappingRecord
	if err := r.unmarshal(payload); err != nil {
		return codec.FileHandle{}, false, err
	}
	return r.Local, true, nil
}

func (s *Store) setFHMappingLocked(master, local codec.FileHandle) error {
	rec := fhMappingRecord{Master: master, Local: local}
	payload, err := rec.marshal()
	if err != nil {
		return err
	}
	idx, found, _, err := s.fhMapTable.Find(fhHash(master), matchesMaster(master))
	if err != nil {
		return s.fail(err)
	}
	if found {
		return s.fail(s.fhMapTable.Update(idx, payload))
	}
	_, err = s.fhMapTable.Insert(fhHash(master), payload)
	return s.fail(err)
}

func (s *Store) deleteFHMappingLocked(master codec.FileHandle) error {
	idx, found, _, err := s.fhMapTable.Find(fhHash(master), matchesMaster(master))
	if err != nil {
		return s.fail(err)
	}
	if !found {
		return nil
	}
	return s.fail(s.fhMapTable.Delete(idx))
}

// SetFHMapping is the exported form, used directly by reintegration when a
// local FH needs a mapping without going through SetMetadataMasterFH.
func (s *Store) SetFHMapping(master, local codec.FileHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.setFHMappingLocked(master, local); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	return nil
}
