package store

// Schema creates both tables. follow_ups is a JSON array of
// {"question","related_term"} objects.
const Schema = `
CREATE TABLE IF NOT EXISTS official_entries (
    term        TEXT PRIMARY KEY,
    definition  TEXT NOT NULL,
    follow_ups  TEXT NOT NULL DEFAULT '[]',
    created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS candidate_entries (
    term        TEXT PRIMARY KEY,
    definition  TEXT NOT NULL,
    follow_ups  TEXT NOT NULL DEFAULT '[]',
    status      TEXT NOT NULL DEFAULT 'under_review'
                CHECK(status IN ('under_review', 'rejected')),
    reason      TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now')),
    CHECK((status = 'rejected') = (reason <> ''))
);

CREATE INDEX IF NOT EXISTS idx_candidate_entries_status ON candidate_entries(status);
`
