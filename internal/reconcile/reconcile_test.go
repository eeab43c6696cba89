package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zlomekfs/zfsd/internal/codec"
	"github.com/zlomekfs/zfsd/internal/metadata"
)

func TestUpdatePSetsUpdateWhenNotComplete(t *testing.T) {
	rec := metadata.Record{ModeType: codec.TypeReg, LocalVersion: 1, MasterVersion: 1}
	remote := codec.Attr{Type: codec.TypeReg, Version: 1, Size: 10}
	flags := UpdateP(rec, 10, false, remote)
	assert.True(t, flags.Has(IFHUpdate))
	assert.False(t, flags.Has(IFHReintegrate))
	assert.False(t, flags.Has(IFHMetadata))
}

func TestUpdatePSetsUpdateWhenMasterMovedAlone(t *testing.T) {
	rec := metadata.Record{Flags: metadata.FlagComplete, ModeType: codec.TypeReg, LocalVersion: 1, MasterVersion: 1}
	remote := codec.Attr{Type: codec.TypeReg, Version: 2, Size: 10}
	flags := UpdateP(rec, 10, false, remote)
	assert.True(t, flags.Has(IFHUpdate))
}

func TestUpdatePDoesNotUpdateWhenBothMovedTogether(t *testing.T) {
	rec := metadata.Record{Flags: metadata.FlagComplete, ModeType: codec.TypeReg, LocalVersion: 2, MasterVersion: 2}
	remote := codec.Attr{Type: codec.TypeReg, Version: 2, Size: 10}
	flags := UpdateP(rec, 10, false, remote)
	assert.False(t, flags.Has(IFHUpdate))
}

func TestUpdatePSetsReintegrateForLocalMods(t *testing.T) {
	rec := metadata.Record{Flags: metadata.FlagComplete, ModeType: codec.TypeReg, LocalVersion: 1, MasterVersion: 1}
	remote := codec.Attr{Type: codec.TypeReg, Version: 1, Size: 10}
	flags := UpdateP(rec, 10, true, remote)
	assert.True(t, flags.Has(IFHReintegrate))
}

func TestUpdatePSetsReintegrateForAheadDirectory(t *testing.T) {
	rec := metadata.Record{Flags: metadata.FlagComplete, ModeType: codec.TypeDir, LocalVersion: 3, MasterVersion: 1}
	remote := codec.Attr{Type: codec.TypeDir, Version: 1}
	flags := UpdateP(rec, 0, false, remote)
	assert.True(t, flags.Has(IFHReintegrate))
}

func TestUpdatePSetsMetadataOnSizeMismatch(t *testing.T) {
	rec := metadata.Record{Flags: metadata.FlagComplete, ModeType: codec.TypeReg, LocalVersion: 1, MasterVersion: 1}
	remote := codec.Attr{Type: codec.TypeReg, Version: 1, Size: 99}
	flags := UpdateP(rec, 10, false, remote)
	assert.True(t, flags.Has(IFHMetadata))
}

func TestUpdatePSetsMetadataOnUIDMismatch(t *testing.T) {
	rec := metadata.Record{Flags: metadata.FlagComplete, ModeType: codec.TypeReg, UID: 1, LocalVersion: 1, MasterVersion: 1}
	remote := codec.Attr{Type: codec.TypeReg, UID: 2, Version: 1, Size: 10}
	flags := UpdateP(rec, 10, false, remote)
	assert.True(t, flags.Has(IFHMetadata))
}
