package registry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/vocdoni/commit-reveal-sequencer/types"
)

const csvHeaderVoterID = "voterId"

// ParseCSV reads voter entries from lines formatted as "voterId,walletAddress".
// Fields are trimmed, blank lines and an optional header row are skipped. Rows with a wrong number of
// fields are kept with their raw content so BulkRegister reports them.
func ParseCSV(r io.Reader) ([]types.VoterEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	var entries []types.VoterEntry
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		if len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "") {
			continue
		}
		if first {
			first = false
			if strings.EqualFold(strings.TrimSpace(record[0]), csvHeaderVoterID) {
				continue
			}
		}
		entry := types.VoterEntry{VoterID: strings.TrimSpace(record[0])}
		if len(record) == 2 {
			entry.WalletAddress = strings.TrimSpace(record[1])
		} else if len(record) > 2 {
			entry.WalletAddress = strings.TrimSpace(strings.Join(record[1:], ","))
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
