// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package importer loads prompt files from a directory into a registry.
//
// Directory structure:
//
//	prompts/
//	  greet.md            # id: "greet"
//	  sql/
//	    explain.yaml      # id: "sql.explain"
//
// File format:
//
//	---
//	name: Explain a query
//	description: Walks through a SQL plan
//	tags: [sql]
//	arguments:
//	  - name: query
//	    required: true
//	---
//	Explain this query step by step: {{query}}
//
// The frontmatter may set id explicitly. Otherwise the id is the path
// relative to the root, without extension, with separators replaced by
// dots. The text after the closing delimiter is the template body.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/promptd/pkg/prompts"
)

const delimiter = "---"

// Extensions lists the file extensions the importer reads.
var Extensions = []string{".yaml", ".yml", ".md"}

// Options controls an import run.
type Options struct {
	// Update patches prompts that already exist when their content differs.
	// Without it existing prompts are skipped.
	Update bool
	// DryRun parses and validates files without writing anything.
	DryRun bool
	Logger *zap.Logger
}

// Report summarizes an import run.
type Report struct {
	Created []string
	Updated []string
	Skipped []string
	Failed  map[string]error // path -> error
}

// OK reports whether every file imported cleanly.
func (r *Report) OK() bool { return len(r.Failed) == 0 }

func (r *Report) fail(path string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]error)
	}
	r.Failed[path] = err
}

// Dir imports every prompt file under root. A bad file is recorded in the
// report and does not stop the run; the returned error is reserved for
// failures to walk the directory or a cancelled context.
func Dir(ctx context.Context, svc prompts.Service, root string, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	report := &Report{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !hasExtension(path) {
			return nil
		}

		spec, err := ParseFile(root, path)
		if err != nil {
			report.fail(path, err)
			logger.Warn("skipping prompt file", zap.String("path", path), zap.Error(err))
			return nil
		}
		if opts.DryRun {
			report.Skipped = append(report.Skipped, spec.ID)
			return nil
		}
		if err := apply(ctx, svc, spec, opts, report); err != nil {
			report.fail(path, err)
			logger.Warn("failed to import prompt", zap.String("path", path), zap.String("id", spec.ID), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("failed to import %s: %w", root, err)
	}

	logger.Info("prompt import finished",
		zap.String("dir", root),
		zap.Int("created", len(report.Created)),
		zap.Int("updated", len(report.Updated)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("failed", len(report.Failed)))
	return report, nil
}

func apply(ctx context.Context, svc prompts.Service, spec prompts.Spec, opts Options, report *Report) error {
	_, err := svc.Create(ctx, spec)
	if err == nil {
		report.Created = append(report.Created, spec.ID)
		return nil
	}
	if prompts.KindOf(err) != prompts.KindDuplicateID {
		return err
	}
	if !opts.Update {
		report.Skipped = append(report.Skipped, spec.ID)
		return nil
	}

	cur, err := svc.Get(ctx, spec.ID, prompts.LatestVersion)
	if err != nil {
		return err
	}
	next, err := svc.Update(ctx, spec.ID, cur.Version, patchFrom(spec))
	if err != nil {
		return err
	}
	if next.Version == cur.Version {
		report.Skipped = append(report.Skipped, spec.ID)
	} else {
		report.Updated = append(report.Updated, spec.ID)
	}
	return nil
}

// patchFrom replaces every user-visible field with the file's content.
func patchFrom(spec prompts.Spec) prompts.Patch {
	args := spec.Arguments
	if args == nil {
		args = []prompts.Argument{}
	}
	tags := spec.Tags
	if tags == nil {
		tags = []string{}
	}
	return prompts.Patch{
		Name:         &spec.Name,
		Description:  &spec.Description,
		TemplateBody: &spec.TemplateBody,
		Arguments:    &args,
		Tags:         &tags,
	}
}

func hasExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ParseFile reads one prompt file. root is used to derive the id when the
// frontmatter does not set one.
func ParseFile(root, path string) (prompts.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return prompts.Spec{}, err
	}
	spec, err := Parse(data)
	if err != nil {
		return prompts.Spec{}, err
	}
	if spec.ID == "" {
		spec.ID = idFromPath(root, path)
	}
	if !prompts.ValidID(spec.ID) {
		return prompts.Spec{}, fmt.Errorf("invalid prompt id %q", spec.ID)
	}
	if spec.Name == "" {
		spec.Name = spec.ID
	}
	return spec, nil
}

// Parse splits a document into YAML frontmatter and template body.
func Parse(data []byte) (prompts.Spec, error) {
	var spec prompts.Spec
	front, body, err := splitFrontmatter(data)
	if err != nil {
		return spec, err
	}
	if err := yaml.Unmarshal(front, &spec); err != nil {
		return spec, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	if strings.TrimSpace(body) == "" {
		// A frontmatter-only file may carry the body as a key.
		if spec.TemplateBody == "" {
			return spec, fmt.Errorf("empty template body")
		}
		return spec, nil
	}
	spec.TemplateBody = strings.TrimSpace(body)
	return spec, nil
}

// splitFrontmatter requires the first line to be the delimiter and looks
// for the next delimiter line.
func splitFrontmatter(data []byte) ([]byte, string, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), len(data)+1)

	var front bytes.Buffer
	var body strings.Builder
	state := 0 // 0: before, 1: frontmatter, 2: body
	for sc.Scan() {
		line := sc.Text()
		switch state {
		case 0:
			if strings.TrimSpace(line) != delimiter {
				return nil, "", fmt.Errorf("invalid format: expected YAML frontmatter starting with %s", delimiter)
			}
			state = 1
		case 1:
			if strings.TrimRight(line, " \t\r") == delimiter {
				state = 2
				continue
			}
			front.WriteString(line)
			front.WriteByte('\n')
		default:
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	if err := sc.Err(); err != nil {
		return nil, "", err
	}
	if state != 2 {
		return nil, "", fmt.Errorf("invalid format: unterminated frontmatter")
	}
	return front.Bytes(), body.String(), nil
}

// idFromPath converts "root/sql/explain.yaml" into "sql.explain".
func idFromPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel))
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")
}
