package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	runIDPrefix     = "release-"
	runIDTimeLayout = "20060102-150405"
	runIDHashLength = 8
)

// GenerateRunID returns a timestamped id for one release run.
// Format: release-YYYYMMDD-HHMMSS-<8 hex>, e.g. release-20240726-143022-a7b3c1d2.
func GenerateRunID() string {
	return generateRunID(time.Now())
}

func generateRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:runIDHashLength]
	return fmt.Sprintf("%s%s-%s", runIDPrefix, now.UTC().Format(runIDTimeLayout), suffix)
}
