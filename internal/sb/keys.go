package sb

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const dateLayout = "20060102"

// Latest is the date argument that selects the newest archive.
const Latest = "last"

// FormatDate renders t as YYYYMMDD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate normalizes a user supplied date to YYYYMMDD. It accepts
// "last", YYYYMMDD, YYYY-MM-DD and "MM DD YYYY"; "last" is returned as is.
func ParseDate(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == Latest {
		return Latest, nil
	}
	normalized := strings.Join(strings.Fields(arg), " ")
	for _, layout := range []string{dateLayout, "2006-01-02", "01 02 2006"} {
		if t, err := time.Parse(layout, normalized); err == nil {
			return FormatDate(t), nil
		}
	}
	return "", fmt.Errorf("invalid date %q (want last, YYYYMMDD, YYYY-MM-DD or \"MM DD YYYY\")", arg)
}

// ArchiveKey is the key of a scheduled archive.
func ArchiveKey(machine string, schedule Schedule, date, ext string) string {
	return fmt.Sprintf("%s/%s/%s.%s", machine, schedule, date, ext)
}

// FileKey is the key of a single uploaded file. name may contain slashes.
func FileKey(machine, date, name string) string {
	return fmt.Sprintf("%s/%s/%s", machine, date, name)
}

// TreeKey is the key of file, found while walking root, when the tree is
// uploaded on date. The key keeps the base name of root so that sibling
// trees do not collide.
func TreeKey(machine, date, root, file string) (string, error) {
	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", fmt.Errorf("relativizing %s: %w", file, err)
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%s is not inside %s", file, root)
	}
	name := path.Join(filepath.ToSlash(filepath.Base(root)), filepath.ToSlash(rel))
	return FileKey(machine, date, name), nil
}

// SchedulePrefix is the listing prefix for the archives of one schedule.
func SchedulePrefix(machine string, schedule Schedule) string {
	return fmt.Sprintf("%s/%s/", machine, schedule)
}

// CatalogKey is where the run history snapshot is stored.
func CatalogKey(machine string) string {
	return machine + "/catalog/history.db"
}

// Located is an archive found in the store.
type Located struct {
	Key      string
	Schedule Schedule
	Date     string
	Kind     ArchiveKind
}

// ParseArchiveKey splits an archive key back into its parts.
func ParseArchiveKey(key string) (*Located, error) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	schedule, err := ParseSchedule(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	date, ext, ok := strings.Cut(parts[2], ".")
	if !ok || len(date) != len(dateLayout) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: bad date in %s", ErrInvalidKey, key)
	}
	kind, err := ArchiveKindFromExtension(ext)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}
	return &Located{Key: key, Schedule: schedule, Date: date, Kind: kind}, nil
}

// ResolveLatest finds the newest archive of a schedule. Dates are fixed
// width, so the lexicographic maximum is the newest.
func ResolveLatest(ctx context.Context, l Lister, machine string, schedule Schedule) (*Located, error) {
	prefix := SchedulePrefix(machine, schedule)
	keys, err := l.List(ctx, prefix, "/")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w under %s", ErrNoBackups, prefix)
	}
	latest := keys[0]
	for _, k := range keys[1:] {
		if k > latest {
			latest = k
		}
	}
	return ParseArchiveKey(latest)
}

// LocateDate finds the archive of a schedule stored on date. The
// extension is taken from the listing, so archives written with a
// different compression setting are still found.
func LocateDate(ctx context.Context, l Lister, machine string, schedule Schedule, date string) (*Located, error) {
	prefix := SchedulePrefix(machine, schedule) + date + "."
	keys, err := l.List(ctx, prefix, "/")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: %s*", ErrNotFound, prefix)
	}
	sort.Strings(keys)
	return ParseArchiveKey(keys[len(keys)-1])
}

// ListArchives returns every parseable archive of a schedule, oldest first.
func ListArchives(ctx context.Context, l Lister, machine string, schedule Schedule) ([]*Located, []string, error) {
	prefix := SchedulePrefix(machine, schedule)
	keys, err := l.List(ctx, prefix, "/")
	if err != nil {
		return nil, nil, fmt.Errorf("listing %s: %w", prefix, err)
	}
	sort.Strings(keys)
	var found []*Located
	var invalid []string
	for _, k := range keys {
		loc, err := ParseArchiveKey(k)
		if err != nil {
			invalid = append(invalid, k)
			continue
		}
		found = append(found, loc)
	}
	return found, invalid, nil
}
