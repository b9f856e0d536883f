package localstore

// Schema contains the SQL schema of one archive store file.
const Schema = `
-- Store metadata (stable store id, format version)
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Folder hierarchy. The root row has a NULL parent; default category
-- containers carry their category token in special.
CREATE TABLE IF NOT EXISTS folders (
    id TEXT PRIMARY KEY,
    parent_id TEXT REFERENCES folders(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    special TEXT
);

-- Items. One row per message-like record; category-specific fields are
-- simply unused columns for other categories.
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    folder_id TEXT NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
    type_tag TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    start_at INTEGER NOT NULL DEFAULT 0,
    end_at INTEGER NOT NULL DEFAULT 0,
    due_at INTEGER NOT NULL DEFAULT 0,
    sent_at INTEGER NOT NULL DEFAULT 0,
    location TEXT NOT NULL DEFAULT '',
    full_name TEXT NOT NULL DEFAULT '',
    company TEXT NOT NULL DEFAULT '',
    email1 TEXT NOT NULL DEFAULT '',
    email2 TEXT NOT NULL DEFAULT '',
    email3 TEXT NOT NULL DEFAULT '',
    sender TEXT NOT NULL DEFAULT '',
    size INTEGER NOT NULL DEFAULT 0,
    percent_complete INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_items_folder_id ON items(folder_id);
CREATE INDEX IF NOT EXISTS idx_folders_parent_id ON folders(parent_id);
`
