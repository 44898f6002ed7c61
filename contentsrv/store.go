package contentsrv

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hazyhaar/sktools/dbopen"
)

var (
	errNotFound    = errors.New("contentsrv: not found")
	errStale       = errors.New("contentsrv: stale sha")
	errSHARequired = errors.New("contentsrv: sha required")
)

type fileKey struct {
	owner, repo, branch, path string
}

type fileRow struct {
	SHA       string
	Content   []byte
	UpdatedAt int64
}

// Commit is one accepted write.
type Commit struct {
	SHA       string `json:"sha"`
	Path      string `json:"path"`
	Message   string `json:"message"`
	BlobSHA   string `json:"blob_sha"`
	ParentSHA string `json:"parent_sha,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// BlobSHA is the git blob object id of content, the version token the
// contents API hands out.
func BlobSHA(content []byte) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

func commitSHA(k fileKey, blob, parent, message string, at time.Time) string {
	h := sha1.New()
	for _, s := range []string{k.owner, k.repo, k.branch, k.path, blob, parent, message, strconv.FormatInt(at.UnixNano(), 10)} {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Server) getFile(ctx context.Context, k fileKey) (*fileRow, error) {
	var f fileRow
	err := s.db.QueryRowContext(ctx, `
		SELECT sha, content, updated_at FROM files
		WHERE owner = ? AND repo = ? AND branch = ? AND path = ?`,
		k.owner, k.repo, k.branch, k.path,
	).Scan(&f.SHA, &f.Content, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// putFile writes content if sha matches the current version. An empty sha
// creates the file and fails when it already exists; a sha on a missing
// file is stale. created reports whether the file is new.
func (s *Server) putFile(ctx context.Context, k fileKey, content []byte, sha, message string) (c Commit, created bool, err error) {
	now := s.now()
	blob := BlobSHA(content)

	err = dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `
			SELECT sha FROM files WHERE owner = ? AND repo = ? AND branch = ? AND path = ?`,
			k.owner, k.repo, k.branch, k.path,
		).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if sha != "" {
				return errStale
			}
			created = true
		case err != nil:
			return err
		case sha == "":
			return errSHARequired
		case sha != current:
			return errStale
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO files (owner, repo, branch, path, sha, content, updated_at)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT (owner, repo, branch, path)
			DO UPDATE SET sha = excluded.sha, content = excluded.content, updated_at = excluded.updated_at`,
			k.owner, k.repo, k.branch, k.path, blob, content, now.UnixMilli(),
		); err != nil {
			return err
		}

		c = Commit{
			SHA:       commitSHA(k, blob, current, message, now),
			Path:      k.path,
			Message:   message,
			BlobSHA:   blob,
			ParentSHA: current,
			CreatedAt: now.UnixMilli(),
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO commits (sha, owner, repo, branch, path, message, blob_sha, parent_sha, created_at)
			VALUES (?,?,?,?,?,?,?,?,?)`,
			c.SHA, k.owner, k.repo, k.branch, k.path, c.Message, c.BlobSHA, c.ParentSHA, c.CreatedAt,
		)
		return err
	})
	return c, created, err
}

// Seed creates or overwrites a file without version checks. For fixtures
// and the serve command's --seed flag.
func (s *Server) Seed(ctx context.Context, owner, repo, branch, path string, content []byte) (string, error) {
	if branch == "" {
		branch = s.defaultBranch
	}
	k := fileKey{owner, repo, branch, path}
	cur, err := s.getFile(ctx, k)
	sha := ""
	switch {
	case err == nil:
		sha = cur.SHA
	case !errors.Is(err, errNotFound):
		return "", err
	}
	if _, _, err := s.putFile(ctx, k, content, sha, "seed "+path); err != nil {
		return "", fmt.Errorf("contentsrv: seed %s: %w", path, err)
	}
	return BlobSHA(content), nil
}

// Commits lists the writes to one file, newest first.
func (s *Server) Commits(ctx context.Context, owner, repo, branch, path string) ([]Commit, error) {
	if branch == "" {
		branch = s.defaultBranch
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT sha, path, message, blob_sha, parent_sha, created_at FROM commits
		WHERE owner = ? AND repo = ? AND branch = ? AND path = ?
		ORDER BY created_at DESC, rowid DESC`, owner, repo, branch, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Commit
	for rows.Next() {
		var c Commit
		if err := rows.Scan(&c.SHA, &c.Path, &c.Message, &c.BlobSHA, &c.ParentSHA, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
