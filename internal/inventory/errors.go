package inventory

import (
	"errors"
	"fmt"
	"strings"
)

// ErrImportAlreadyRunning rejects an upload while a previous annotation
// pass is still walking the staged rows.
var ErrImportAlreadyRunning = errors.New("mapping process is already running")

// InputError reports an unusable workbook: not an xlsx, no header row, or
// required columns missing.
type InputError struct {
	Reason         string
	MissingColumns []string
}

func (e *InputError) Error() string {
	if len(e.MissingColumns) > 0 {
		return fmt.Sprintf("missing columns: %s", strings.Join(e.MissingColumns, ", "))
	}
	return e.Reason
}
