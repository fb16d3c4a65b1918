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

package prompts

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/teradata-labs/promptd/pkg/template"
)

var (
	idPattern      = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
	argNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("promptid", func(fl validator.FieldLevel) bool {
		return idPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("argname", func(fl validator.FieldLevel) bool {
		return argNamePattern.MatchString(fl.Field().String())
	})
	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidID reports whether id is an acceptable prompt identifier.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Validate checks a prompt record before it is written. It returns a
// KindValidationFailed error describing every problem found.
func Validate(p *Prompt) error {
	spec := Spec{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		TemplateBody: p.TemplateBody,
		Arguments:    p.Arguments,
		Tags:         p.Tags,
	}
	if p.ID == "" {
		return NewError(KindValidationFailed, "", "id: required")
	}

	var problems []string
	if err := validate.Struct(spec); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Wrap(KindValidationFailed, p.ID, err, "invalid prompt")
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	declared := make(map[string]bool, len(p.Arguments))
	for _, a := range p.Arguments {
		if declared[a.Name] {
			problems = append(problems, fmt.Sprintf("arguments: duplicate name %q", a.Name))
		}
		declared[a.Name] = true
	}

	if len(problems) > 0 {
		return NewError(KindValidationFailed, p.ID, strings.Join(problems, "; "))
	}

	tmpl, err := template.Parse(p.TemplateBody)
	if err != nil {
		return Wrap(KindValidationFailed, p.ID,
			&Error{Kind: KindTemplateError, ID: p.ID, Err: err}, "template_body")
	}
	for _, name := range tmpl.Variables() {
		if !declared[name] {
			problems = append(problems, fmt.Sprintf("template_body: placeholder %q is not a declared argument", name))
		}
	}
	if len(problems) > 0 {
		return NewError(KindValidationFailed, p.ID, strings.Join(problems, "; "))
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + ": required"
	case "max":
		return fmt.Sprintf("%s: longer than %s", field, fe.Param())
	case "promptid":
		return fmt.Sprintf("%s: %q is not a valid prompt id", field, fe.Value())
	case "argname":
		return fmt.Sprintf("%s: %q is not a valid argument name", field, fe.Value())
	}
	return fmt.Sprintf("%s: failed %s", field, fe.Tag())
}
