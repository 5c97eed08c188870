package format

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Input is a line-oriented input stream with transparent gzip handling.
// Gzip is detected from the magic bytes, not the file extension.
type Input struct {
	reader     *bufio.Reader
	file       *os.File
	gzipReader *gzip.Reader
}

// OpenInput opens an annotation file for reading; "-" reads from stdin.
func OpenInput(path string) (*Input, error) {
	if path == "-" {
		return &Input{reader: bufio.NewReader(os.Stdin)}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file: %w", err)
	}

	in := &Input{file: file}

	magic := make([]byte, 2)
	n, err := file.Read(magic)
	if err != nil && err != io.EOF {
		file.Close()
		return nil, fmt.Errorf("read input file: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek input file: %w", err)
	}

	if n == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		in.gzipReader, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		in.reader = bufio.NewReader(in.gzipReader)
	} else {
		in.reader = bufio.NewReader(file)
	}

	return in, nil
}

// NewInput wraps an arbitrary reader, for tests and pipes.
func NewInput(r io.Reader) *Input {
	return &Input{reader: bufio.NewReader(r)}
}

// ReadLine returns the next line without its terminator. At end of input
// it returns io.EOF; a final line without a newline is still returned.
func (in *Input) ReadLine() (string, error) {
	line, err := in.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	if line == "" && err == io.EOF {
		return "", io.EOF
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

// Close closes the stream and the underlying file.
func (in *Input) Close() error {
	if in.gzipReader != nil {
		in.gzipReader.Close()
	}
	if in.file != nil {
		return in.file.Close()
	}
	return nil
}
