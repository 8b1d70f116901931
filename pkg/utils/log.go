package utils

import (
	"bufio"
	"io"

	log "github.com/sirupsen/logrus"
)

// LogPipe writes every line read from pipe to entry at level until EOF.
// A nil entry logs through the standard logger.
func LogPipe(pipe io.Reader, entry *log.Entry, level log.Level) error {
	if entry == nil {
		entry = log.NewEntry(log.StandardLogger())
	}
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		entry.Log(level, line)
	}
	return scanner.Err()
}
