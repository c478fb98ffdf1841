package statefile

import (
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// STATE FILES - Best-effort JSON side channel
// ═══════════════════════════════════════════════════════════════════════════════
//
// Dedup state and dashboard snapshots are durability conveniences, not
// correctness-critical: the in-memory ledger stays authoritative for the
// running process. Failures here are recorded and ignored, never allowed
// to reach the mirroring path.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Write marshals v and atomically replaces path via write-temp-then-rename,
// so readers never observe a partial document. The returned error is for
// the caller's log line only.
func Write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// WriteQuiet is the fire-and-forget variant used on hot paths.
func WriteQuiet(path string, v any) {
	if err := Write(path, v); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("State write failed")
	}
}

// Read unmarshals path into v. A missing file is not an error condition
// for callers that treat state as optional; they get os.IsNotExist.
func Read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
