// Package classify implements the tasting step (C2): sniffing a file's
// MIME type and matching it against compiled YARA rules, recording both
// into the file's flavor set under their respective namespaces.
package classify

import (
	"bytes"

	"github.com/pithecene-io/triage/log"
	"github.com/pithecene-io/triage/types"
)

// asciiWhitespace is the set stripped from the front of a file's bytes
// before rule matching, per the raw-bytes-minus-leading-whitespace input
// contract.
const asciiWhitespace = " \t\n\r\f\v"

// Classifier runs every enabled tasting step over a file's bytes.
type Classifier struct {
	mime   *MimeClassifier
	yara   yaraScanner
	logger *log.Logger
}

// New builds a Classifier. yara may be nil if no ruleset is configured.
func New(mime *MimeClassifier, yara yaraScanner, logger *log.Logger) *Classifier {
	return &Classifier{mime: mime, yara: yara, logger: logger}
}

// Classify sniffs data and mutates file.Flavors in place. Tasting failures
// are logged and otherwise ignored: a file that can't be classified is
// still distributed, just with no flavors from that step.
func (c *Classifier) Classify(file *types.File, data []byte) {
	if c.mime != nil {
		if mt := c.mime.Detect(data); mt != "" {
			file.Flavors.Add("mime", mt)
		}
	}

	if c.yara == nil {
		return
	}

	matches, err := c.yara.ScanMem(bytes.TrimLeft(data, asciiWhitespace), 0, scanTimeout)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("yara scan failed", map[string]any{"uid": file.UID, "error": err.Error()})
		}
		return
	}
	for _, m := range matches {
		file.Flavors.Add("yara", m.Rule)
	}
}
