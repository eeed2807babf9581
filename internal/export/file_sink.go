package export

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"proxycrawler/internal/domain"
)

const DefaultOutputPath = "./proxycrawler-proxies.txt"

var (
	ErrInvalidOutputPath = errors.New("invalid output path")
	ErrUnsupportedFile   = errors.New("unsupported proxy file")
)

// FileSink appends endpoint URIs to text files, one per line.
type FileSink struct{}

func NewFileSink() *FileSink {
	return &FileSink{}
}

// GroupedFileName is the per protocol file written next to the output path.
func GroupedFileName(protocol domain.Protocol) string {
	return fmt.Sprintf("proxies-%s.txt", protocol)
}

// Write appends every endpoint of records to path, or to one file per
// protocol next to path when grouping. It returns the files it wrote to.
func (s *FileSink) Write(records []domain.Candidate, groupByProtocol bool, path string) ([]string, error) {
	if path == "" {
		path = DefaultOutputPath
	}
	if len(records) == 0 {
		return nil, nil
	}

	if !groupByProtocol {
		var lines []string
		for i := range records {
			for _, protocol := range records[i].Protocols() {
				lines = append(lines, records[i].Endpoints[protocol])
			}
		}
		if len(lines) == 0 {
			return nil, nil
		}
		if err := appendLines(path, lines); err != nil {
			return nil, err
		}
		log.Info("Saved proxies", "file", path, "count", len(lines))
		return []string{path}, nil
	}

	grouped := make(map[domain.Protocol][]string)
	seen := make(map[string]struct{})
	for i := range records {
		for _, protocol := range records[i].Protocols() {
			uri := records[i].Endpoints[protocol]
			if _, dup := seen[uri]; dup {
				continue
			}
			seen[uri] = struct{}{}
			grouped[protocol] = append(grouped[protocol], uri)
		}
	}

	dir := filepath.Dir(path)
	var written []string
	for _, protocol := range domain.AllProtocols {
		lines := grouped[protocol]
		if len(lines) == 0 {
			continue
		}

		target := filepath.Join(dir, GroupedFileName(protocol))
		if err := appendLines(target, lines); err != nil {
			return written, err
		}
		log.Info("Saved proxies", "protocol", protocol, "file", target, "count", len(lines))
		written = append(written, target)
	}

	return written, nil
}

func appendLines(path string, lines []string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := writer.WriteString(line + "\n"); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// CheckOutputPath fails when the directory that would hold path is missing.
func CheckOutputPath(path string) error {
	if path == "" {
		path = DefaultOutputPath
	}

	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("%w: %s: directory does not exist", ErrInvalidOutputPath, path)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s: parent is not a directory", ErrInvalidOutputPath, path)
	}
	return nil
}

// DefaultValidatedPath is where `validate` writes when no output path is given.
func DefaultValidatedPath(proxyFile string) string {
	base := strings.TrimSuffix(filepath.Base(proxyFile), filepath.Ext(proxyFile))
	return base + "-valid.txt"
}

// ReadProxyFile returns the lines of a .txt proxy list.
func ReadProxyFile(path string) ([]string, error) {
	if !strings.EqualFold(filepath.Ext(path), ".txt") {
		return nil, fmt.Errorf("%w: %s: expected a .txt file", ErrUnsupportedFile, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFile, err)
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}
