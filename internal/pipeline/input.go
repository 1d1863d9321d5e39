package pipeline

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"

	"github.com/go-playground/validator"
)

// maxLineBytes bounds one JSONL record.
const maxLineBytes = 4 << 20

var validate = validator.New()

// eventRecord is one line of the optional events file. Participants are
// surface names; they are resolved like any other mention.
type eventRecord struct {
	ID           string   `json:"id" validate:"required"`
	Date         string   `json:"date,omitempty"`
	Route        string   `json:"route,omitempty"`
	Participants []string `json:"participants" validate:"required"`
}

// LoadMentions reads a JSONL file of raw mentions. Malformed lines are
// logged and skipped; the returned count says how many.
func LoadMentions(path string) ([]common.RawMention, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()

	mentions := make([]common.RawMention, 0)
	skipped, err := scanJSONL(f, func(line int, raw []byte) error {
		var m common.RawMention
		if err := json.Unmarshal(raw, &m); err != nil {
			return err
		}
		m.SurfaceText = strings.TrimSpace(m.SurfaceText)
		m.SourceDocumentID = strings.TrimSpace(m.SourceDocumentID)
		if err := validate.Struct(m); err != nil {
			return err
		}
		mentions = append(mentions, m)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read corpus %s: %w", path, err)
	}
	return mentions, skipped, nil
}

// LoadEventMentions reads a JSONL file of explicit events and turns every
// participant into a mention of that event. An empty path yields nothing.
func LoadEventMentions(path string) ([]common.RawMention, int, error) {
	if path == "" {
		return nil, 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open events: %w", err)
	}
	defer f.Close()

	var mentions []common.RawMention
	skipped, err := scanJSONL(f, func(line int, raw []byte) error {
		var ev eventRecord
		if err := json.Unmarshal(raw, &ev); err != nil {
			return err
		}
		ev.ID = strings.TrimSpace(ev.ID)
		if err := validate.Struct(ev); err != nil {
			return err
		}
		for _, p := range ev.Participants {
			if strings.TrimSpace(p) == "" {
				continue
			}
			mentions = append(mentions, common.RawMention{
				SurfaceText:      strings.TrimSpace(p),
				SourceDocumentID: ev.ID,
				Context:          &common.MentionContext{EventID: ev.ID, Date: ev.Date, Route: ev.Route},
			})
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read events %s: %w", path, err)
	}
	return mentions, skipped, nil
}

// scanJSONL calls fn for every non-blank line. Errors from fn skip the line
// and are counted; read errors abort.
func scanJSONL(r io.Reader, fn func(line int, raw []byte) error) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	skipped, line := 0, 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		if err := fn(line, raw); err != nil {
			skipped++
			logger.Warn("[Rebuild] Skipping malformed record", "line", line, "err", errors.Join(common.ErrMalformedInput, err))
		}
	}
	if err := sc.Err(); err != nil {
		return skipped, err
	}
	return skipped, nil
}
