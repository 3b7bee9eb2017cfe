// Command vectorgen regenerates testdata/conformance/canon/vectors.json.
//
// Inputs are taken from the existing file (one per distinct name, in file
// order) and re-encoded under every contract. With -check it only reports
// whether the file is current.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"xdao.co/canonproof/canon"
)

type vector struct {
	Name      string `json:"name"`
	Contract  string `json:"contract"`
	Input     string `json:"input"`
	Canonical string `json:"canonical"`
	Digest    string `json:"digest"`
}

type vectorFile struct {
	Version int      `json:"version"`
	Vectors []vector `json:"vectors"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out, errOut io.Writer) int {
	fs := flag.NewFlagSet("vectorgen", flag.ContinueOnError)
	fs.SetOutput(errOut)
	path := fs.String("file", "testdata/conformance/canon/vectors.json", "vector file")
	check := fs.Bool("check", false, "exit 1 if the file is not up to date")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	current, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	var vf vectorFile
	if err := json.Unmarshal(current, &vf); err != nil {
		fmt.Fprintf(errOut, "parse %s: %v\n", *path, err)
		return 1
	}
	next, err := regenerate(vf)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	b, err := render(next)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	if *check {
		if !bytes.Equal(b, current) {
			fmt.Fprintf(errOut, "%s is stale; rerun vectorgen\n", *path)
			return 1
		}
		return 0
	}
	if err := os.WriteFile(*path, b, 0o644); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintf(out, "wrote %d vectors to %s\n", len(next.Vectors), *path)
	return 0
}

func regenerate(vf vectorFile) (vectorFile, error) {
	out := vectorFile{Version: vf.Version}
	if out.Version == 0 {
		out.Version = 1
	}
	seen := map[string]bool{}
	for _, v := range vf.Vectors {
		if seen[v.Name] {
			continue
		}
		seen[v.Name] = true
		in, err := decode(v.Input)
		if err != nil {
			return vectorFile{}, fmt.Errorf("%s: %w", v.Name, err)
		}
		for _, c := range canon.Contracts() {
			enc, err := canon.Encode(in, c)
			if err != nil {
				return vectorFile{}, fmt.Errorf("%s/%s: %w", v.Name, c, err)
			}
			d, err := canon.Hash(enc, c, "")
			if err != nil {
				return vectorFile{}, fmt.Errorf("%s/%s: %w", v.Name, c, err)
			}
			out.Vectors = append(out.Vectors, vector{
				Name:      v.Name,
				Contract:  c.String(),
				Input:     v.Input,
				Canonical: string(enc),
				Digest:    d.String(),
			})
		}
	}
	return out, nil
}

func decode(s string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func render(vf vectorFile) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(vf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
