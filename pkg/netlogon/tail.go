package netlogon

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// tailChunkSize is how much of the file is read per backward step
const tailChunkSize = 64 * 1024

// maxLineLength bounds a single line when reading forward
const maxLineLength = 1024 * 1024

// ReadTail reads lines from a file of the given size.
//
// n < 0 returns the last |n| lines, n > 0 the first n lines, n == 0 nothing.
// Lines come back in file order (oldest first) without their line ending.
// A trailing line without a newline is included; the empty string after a
// final newline is not.
func ReadTail(r io.ReaderAt, size int64, n int) ([]string, error) {
	switch {
	case n == 0 || size <= 0:
		return nil, nil
	case n > 0:
		return readHead(r, size, n)
	default:
		return readLast(r, size, -n)
	}
}

func readHead(r io.ReaderAt, size int64, n int) ([]string, error) {
	scanner := bufio.NewScanner(io.NewSectionReader(r, 0, size))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	lines := make([]string, 0, n)
	for len(lines) < n && scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log head: %w", err)
	}
	return lines, nil
}

func readLast(r io.ReaderAt, size int64, n int) ([]string, error) {
	var (
		chunks   [][]byte
		newlines int
		offset   = size
		total    int64
	)

	for offset > 0 {
		step := int64(tailChunkSize)
		if step > offset {
			step = offset
		}
		offset -= step

		chunk := make([]byte, step)
		read, err := r.ReadAt(chunk, offset)
		if err != nil && !(err == io.EOF && int64(read) == step) {
			return nil, fmt.Errorf("failed to read log at offset %d: %w", offset, err)
		}

		countFrom := chunk
		if total == 0 && len(countFrom) > 0 && countFrom[len(countFrom)-1] == '\n' {
			// The final newline terminates the last line, it does not start one
			countFrom = countFrom[:len(countFrom)-1]
		}
		newlines += bytes.Count(countFrom, []byte{'\n'})
		chunks = append(chunks, chunk)
		total += step

		if newlines >= n {
			break
		}
	}

	data := make([]byte, 0, total)
	for i := len(chunks) - 1; i >= 0; i-- {
		data = append(data, chunks[i]...)
	}
	data = bytes.TrimSuffix(data, []byte{'\n'})
	if len(data) == 0 {
		return nil, nil
	}

	parts := strings.Split(string(data), "\n")
	if offset > 0 {
		// First segment starts mid-line
		parts = parts[1:]
	}
	if len(parts) > n {
		parts = parts[len(parts)-n:]
	}

	lines := make([]string, len(parts))
	for i, part := range parts {
		lines[i] = strings.TrimSuffix(part, "\r")
	}
	return lines, nil
}
