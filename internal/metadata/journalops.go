package metadata

import "fmt"

func journalSuffix(gen uint32) string { return fmt.Sprintf("%08x.journal", gen) }

func (s *Store) journalPath(dev, ino, gen uint32) string {
	return DerivePath(s.root, dev, ino, s.depth, journalSuffix(gen))
}

// ReadDirJournal reads the journal for directory (dev,ino,gen), spec.md §4.3.
func (s *Store) ReadDirJournal(dev, ino, gen uint32) (*Journal, error) {
	return ReadJournal(s.journalPath(dev, ino, gen))
}

// WriteDirJournal rewrites the journal for (dev,ino,gen).
func (s *Store) WriteDirJournal(dev, ino, gen uint32, j *Journal) error {
	if err := WriteJournal(s.journalPath(dev, ino, gen), j); err != nil {
		return s.fail(err)
	}
	return nil
}

// AddDirJournalEntry appends e to (dev,ino,gen)'s journal.
func (s *Store) AddDirJournalEntry(dev, ino, gen uint32, e JournalEntry) (*Journal, error) {
	j, err := AddJournalEntry(s.journalPath(dev, ino, gen), e)
	if err != nil {
		return nil, s.fail(err)
	}
	return j, nil
}
