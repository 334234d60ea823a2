// Package jsonx encodes checkpoints and telemetry events. It uses sonic by
// default; build with -tags nojsonsimd to fall back to encoding/json on
// platforms sonic does not support.
package jsonx
