package exiftool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"photocull/internal/logging"
)

// sanitizeValue strips control characters that would corrupt the argfile.
func sanitizeValue(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c == 0 || (c < 32 && c != '\t') {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(c)
	}
	return strings.TrimSpace(b.String())
}

// Assignment formats one -Group:Tag=value argument.
func Assignment(tagKey, value string) string {
	return "-" + tagKey + "=" + sanitizeValue(value)
}

// WriteAssignments applies tag assignments to a file in place. Assignments
// are "-Group:Tag=value" arguments, routed through an argfile together with
// the overwrite flag so no backup copy is left behind.
func (t *Tool) WriteAssignments(ctx context.Context, path string, assignments []string) error {
	if len(assignments) == 0 {
		return nil
	}

	args := []string{"-overwrite_original", "-charset", "filename=UTF8"}
	args = append(args, assignments...)
	args = append(args, filepath.Clean(path))

	argfile, err := writeArgFile(args)
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(argfile); err != nil {
			logging.Warn("failed to remove argfile %s: %v", argfile, err)
		}
	}()

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, t.path, "-@", argfile)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("exiftool write failed for %s: %v: %s", path, err, sanitizeValue(stderr.String()))
	}
	return nil
}

// WriteTitle writes the display title into every tag the downstream
// consumers read it from.
func (t *Tool) WriteTitle(ctx context.Context, path, title string) error {
	return t.WriteAssignments(ctx, path, []string{
		Assignment("XMP-dc:Title", title),
		Assignment("IFD0:XPTitle", title),
		Assignment("IFD0:DocumentName", title),
	})
}

// WriteDescription writes the caption/description tags.
func (t *Tool) WriteDescription(ctx context.Context, path, description string) error {
	return t.WriteAssignments(ctx, path, []string{
		Assignment("XMP-dc:Description", description),
		Assignment("IFD0:XPComment", description),
		Assignment("IFD0:ImageDescription", description),
		Assignment("EXIF:UserComment", description),
	})
}
