package c2prog

import "github.com/pkg/errors"

// ProgressFunc is called after each page written with the number of bytes
// done so far and the total.
type ProgressFunc func(done, total int)

// FlashChunk writes as much of src at addr as fits in the erase page
// containing addr and returns the number of bytes written. Bytes of the page
// outside the written range are read first and written back unchanged.
func (s *Session) FlashChunk(addr uint32, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, nil
	}
	if err := s.checkRange(addr, len(src)); err != nil {
		return 0, err
	}

	pageSize := s.family.PageSize
	page := addr / pageSize
	pageBase := page * pageSize
	chunkStart := addr - pageBase
	chunkLen := len(src)
	if room := int(pageSize - chunkStart); chunkLen > room {
		chunkLen = room
	}

	buf := make([]byte, pageSize)
	if chunkStart != 0 || chunkLen < int(pageSize) {
		if err := s.BlockRead(pageBase, int(pageSize), buf); err != nil {
			return 0, errors.Wrapf(err, "read page %d", page)
		}
	}
	copy(buf[chunkStart:], src[:chunkLen])

	if err := s.ErasePage(int(page)); err != nil {
		return 0, err
	}
	if err := s.BlockWrite(pageBase, buf); err != nil {
		return 0, errors.Wrapf(err, "write page %d", page)
	}
	return chunkLen, nil
}

// WriteRegion writes data at addr one page at a time. It returns the number
// of bytes written, which is less than len(data) when an error occurred.
func (s *Session) WriteRegion(addr uint32, data []byte, progress ProgressFunc) (int, error) {
	if err := s.checkRange(addr, len(data)); err != nil {
		return 0, err
	}
	done := 0
	for done < len(data) {
		n, err := s.FlashChunk(addr+uint32(done), data[done:])
		if err != nil {
			return done, err
		}
		done += n
		if progress != nil {
			progress(done, len(data))
		}
	}
	return done, nil
}
