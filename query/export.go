package query

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"github.com/libraryhq/notifications/common"
	"github.com/libraryhq/notifications/model"
)

// ExportFormat selects the serialization used for a notification export.
type ExportFormat string

// The export formats recognized by the system.
const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// exportPageSize is the number of records fetched per page while streaming an
// export.
const exportPageSize = model.MaxPageSize

// Export writes every notification matching the filter to the writer in the
// requested format. It pages through the same listing query that backs
// on-demand reads, so an export always reflects the same filtering semantics.
func (s *Service) Export(
	ctx context.Context,
	filter *model.NotificationFilter,
	format ExportFormat,
	w io.Writer,
) error {
	if format != FormatCSV && format != FormatJSON {
		return common.NewValidationError("format", "must be `csv` or `json`")
	}
	if err := validateFilter(filter); err != nil {
		return err
	}

	var write func(*model.Notification) error
	var finish func() error

	switch format {
	case FormatCSV:
		write, finish = csvExporter(w)
	case FormatJSON:
		write, finish = jsonExporter(w)
	}

	for page := 1; ; page++ {
		listing, err := s.dbClient.ListNotifications(ctx, filter, model.Page{Number: page, Size: exportPageSize})
		if err != nil {
			return common.NewDependencyError(err, "unable to list notifications for export")
		}
		for _, notification := range listing {
			if err := write(notification); err != nil {
				return err
			}
		}
		if len(listing) < exportPageSize {
			break
		}
	}

	return finish()
}

// csvExporter returns the per-record and finishing functions for a CSV export.
func csvExporter(w io.Writer) (func(*model.Notification) error, func() error) {
	writer := csv.NewWriter(w)
	headerWritten := false

	write := func(n *model.Notification) error {
		if !headerWritten {
			header := []string{"id", "user", "type", "priority", "subject", "message", "read", "created"}
			if err := writer.Write(header); err != nil {
				return err
			}
			headerWritten = true
		}
		read := "false"
		if n.Seen {
			read = "true"
		}
		return writer.Write([]string{
			n.ID,
			n.User,
			string(n.Type),
			string(n.Priority),
			n.Subject,
			n.Message,
			read,
			n.TimeCreated.Format(time.RFC3339),
		})
	}
	finish := func() error {
		writer.Flush()
		return writer.Error()
	}
	return write, finish
}

// jsonExporter returns the per-record and finishing functions for a JSON
// export. The output is a single JSON array.
func jsonExporter(w io.Writer) (func(*model.Notification) error, func() error) {
	encoder := json.NewEncoder(w)
	first := true

	write := func(n *model.Notification) error {
		prefix := ",\n"
		if first {
			prefix = "[\n"
			first = false
		}
		if _, err := io.WriteString(w, prefix); err != nil {
			return err
		}
		return encoder.Encode(n)
	}
	finish := func() error {
		if first {
			_, err := io.WriteString(w, "[]\n")
			return err
		}
		_, err := io.WriteString(w, "]\n")
		return err
	}
	return write, finish
}
