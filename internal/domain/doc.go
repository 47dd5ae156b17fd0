// Package domain models hydroelectric power plants and the water-level
// readings collected for them.
//
// # Plants
//
// A plant is created and maintained through an administrative interface that
// this service does not own. The ingestion engine only reads plants. Each plant
// carries three optional basin thresholds:
//
//	upperBasinMax, upperBasinMin  acceptable band for the upper (head) basin level
//	lowerBasinMin                 minimum acceptable lower (tail) basin level
//
// The hydrostatic id is the cadastral key ("kadastro_id") of the plant in the
// Lithuanian water body register (UETK). It is used to look up the plant's
// public name and installed power, see [MetadataLookup].
//
// # External source references
//
// Plants that should be polled carry an external source reference. The
// textual form is "<kind>:<key>", e.g. "hidrolt:12" or "meteolt:kauno-hec".
// A bare integer ("12") is the legacy hidro.lt station id and resolves to the
// hidrolt kind. Plants without a reference are never polled. See [ParseSourceRef].
//
// # Readings
//
// A reading is one timestamped observation of the upper and lower basin levels.
// Either level may be missing. At most one reading is stored per
// (plant, observation time) pair; the ingestion worker enforces this with an
// existence check before every insert. Observation times are stored in UTC at
// second precision, see [CanonicalTime].
//
// # Failures
//
// Ingestion failures are values, not control flow. A worker converts every
// error into an [Outcome] with status [StatusFailed]; the error taxonomy
// ([ErrTransientFetch], [ErrMalformedPayload], [ErrPersistence],
// [ErrUnknownSource]) tells whether retrying could have helped.
package domain
