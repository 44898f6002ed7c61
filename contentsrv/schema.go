package contentsrv

// Schema is the DDL of the contents server.
const Schema = `
-- Current file versions, one row per (owner, repo, branch, path).
CREATE TABLE IF NOT EXISTS files (
    owner      TEXT NOT NULL,
    repo       TEXT NOT NULL,
    branch     TEXT NOT NULL,
    path       TEXT NOT NULL,
    sha        TEXT NOT NULL,
    content    BLOB NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (owner, repo, branch, path)
);

-- Every accepted write.
CREATE TABLE IF NOT EXISTS commits (
    sha        TEXT PRIMARY KEY,
    owner      TEXT NOT NULL,
    repo       TEXT NOT NULL,
    branch     TEXT NOT NULL,
    path       TEXT NOT NULL,
    message    TEXT NOT NULL,
    blob_sha   TEXT NOT NULL,
    parent_sha TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_commits_file ON commits(owner, repo, branch, path, created_at DESC);
`
