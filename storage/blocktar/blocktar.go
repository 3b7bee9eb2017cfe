// Package blocktar moves CAS objects between stores as a deterministic TAR
// archive: one blocks/<cid> entry per object plus an optional index.json.
package blocktar

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/canonproof/canon"
	"xdao.co/canonproof/cidutil"
	"xdao.co/canonproof/storage"
)

// FormatVersion is the current index.json schema version.
const FormatVersion = 1

const indexName = "index.json"

var epoch0 = time.Unix(0, 0).UTC()

// Index is the optional index.json entry. Labels are names for selected
// blocks (for example "manifest"); they carry no authority of their own.
type Index struct {
	Version   int     `json:"version"`
	CIDCodec  string  `json:"cid_codec"`
	Multihash string  `json:"multihash"`
	Blocks    []Block `json:"blocks"`
	Labels    []Label `json:"labels,omitempty"`
}

type Block struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type Label struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

// Lookup returns the CID stored under a label.
func (idx Index) Lookup(name string) (cid.Cid, bool) {
	for _, l := range idx.Labels {
		if l.Name == name {
			id, err := cid.Decode(l.CID)
			if err != nil {
				return cid.Undef, false
			}
			return id, true
		}
	}
	return cid.Undef, false
}

// ExportOptions controls archive export behavior.
type ExportOptions struct {
	Labels       map[string]cid.Cid
	IncludeIndex bool
}

// Export writes the blocks for ids to w.
//
// Output bytes depend only on the set of blocks and labels: entries are in
// lexicographic CID order, headers are normalized, and the index is
// canonical JSON. Every block is re-hashed before it is written.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return errors.New("blocktar: nil CAS")
	}

	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	fail := func(err error) error {
		_ = tw.Close()
		return err
	}

	idx := Index{Version: FormatVersion, CIDCodec: "raw", Multihash: "sha2-256", Blocks: make([]Block, 0, len(names))}
	for _, s := range names {
		id := uniq[s]
		b, err := cas.Get(ctx, id)
		if err != nil {
			return fail(fmt.Errorf("blocktar: get %s: %w", s, err))
		}
		got, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			return fail(err)
		}
		if !got.Equals(id) {
			return fail(storage.ErrCIDMismatch)
		}
		if err := writeFile(tw, "blocks/"+s, b); err != nil {
			return fail(err)
		}
		idx.Blocks = append(idx.Blocks, Block{CID: s, Size: len(b)})
	}

	if opts.IncludeIndex {
		keys := make([]string, 0, len(opts.Labels))
		for k := range opts.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := opts.Labels[k]
			if k == "" {
				return fail(errors.New("blocktar: empty label name"))
			}
			if !v.Defined() {
				return fail(storage.ErrInvalidCID)
			}
			if _, ok := uniq[v.String()]; !ok {
				return fail(fmt.Errorf("blocktar: label %q points outside the archive", k))
			}
			idx.Labels = append(idx.Labels, Label{Name: k, CID: v.String()})
		}
		b, err := canon.Encode(idx, canon.Canonicalization)
		if err != nil {
			return fail(err)
		}
		if err := writeFile(tw, indexName, b); err != nil {
			return fail(err)
		}
	}

	return tw.Close()
}

// ImportOptions controls archive import behavior.
type ImportOptions struct {
	// IgnoreUnknown skips unknown entries instead of failing.
	IgnoreUnknown bool
}

// Import reads an archive from r and writes every block into cas. It returns
// the parsed index, or a zero Index when the archive has none.
//
// Each block must hash to the CID in its entry name.
func Import(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) (Index, error) {
	var idx Index
	if cas == nil {
		return idx, errors.New("blocktar: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}

	for {
		h, err := tr.Next()
		if err == io.EOF {
			return idx, nil
		}
		if err != nil {
			return idx, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return idx, fmt.Errorf("blocktar: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return idx, fmt.Errorf("blocktar: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == indexName {
			b, err := io.ReadAll(tr)
			if err != nil {
				return idx, err
			}
			if err := json.Unmarshal(b, &idx); err != nil {
				return idx, fmt.Errorf("blocktar: index: %w", err)
			}
			continue
		}

		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return idx, fmt.Errorf("blocktar: unknown entry: %s", name)
		}

		id, derr := cid.Decode(strings.TrimPrefix(name, "blocks/"))
		if derr != nil || !id.Defined() {
			return idx, storage.ErrInvalidCID
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return idx, err
		}
		got, err := cidutil.CIDv1RawSHA256CID(payload)
		if err != nil {
			return idx, err
		}
		if !got.Equals(id) {
			return idx, storage.ErrCIDMismatch
		}
		if _, ok := seen[id.String()]; ok {
			return idx, fmt.Errorf("blocktar: duplicate block entry: %s", id)
		}
		seen[id.String()] = struct{}{}

		putID, err := cas.Put(ctx, payload)
		if err != nil {
			return idx, err
		}
		if !putID.Equals(id) {
			return idx, storage.ErrCIDMismatch
		}
	}
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
