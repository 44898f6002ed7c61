// Package configsync reads the remote sidekick configuration, ensures a set
// of plugin descriptors in it, and commits it back only when the merge
// changed something. The write is guarded by the version token returned by
// the read, so a concurrent edit surfaces as a conflict.
package configsync

import (
	"context"
	"fmt"

	"github.com/hazyhaar/sktools/contents"
)

// Location names the remote configuration file.
type Location struct {
	Owner  string `json:"owner" yaml:"owner"`
	Repo   string `json:"repo" yaml:"repo"`
	Path   string `json:"path" yaml:"path"`
	Branch string `json:"branch,omitempty" yaml:"branch"`
}

func (l Location) String() string {
	s := fmt.Sprintf("%s/%s/%s", l.Owner, l.Repo, l.Path)
	if l.Branch != "" {
		s += "@" + l.Branch
	}
	return s
}

// File is the remote content and its version token. It is read once per
// run and consumed once by the write.
type File struct {
	Content []byte
	SHA     string
}

// Store reads and conditionally writes remote files.
type Store interface {
	Read(ctx context.Context, loc Location) (File, error)
	// Write replaces the file if its current version is sha and returns
	// the new version token.
	Write(ctx context.Context, loc Location, message string, content []byte, sha string) (string, error)
}

// ContentsStore is a Store backed by the contents API.
type ContentsStore struct {
	Client *contents.Client
}

func (s ContentsStore) Read(ctx context.Context, loc Location) (File, error) {
	f, err := s.Client.Get(ctx, loc.Owner, loc.Repo, loc.Path, loc.Branch)
	if err != nil {
		return File{}, err
	}
	return File{Content: f.Content, SHA: f.SHA}, nil
}

func (s ContentsStore) Write(ctx context.Context, loc Location, message string, content []byte, sha string) (string, error) {
	res, err := s.Client.Put(ctx, loc.Owner, loc.Repo, loc.Path, contents.PutRequest{
		Message: message,
		Content: content,
		SHA:     sha,
		Branch:  loc.Branch,
	})
	if err != nil {
		return "", err
	}
	return res.SHA, nil
}
