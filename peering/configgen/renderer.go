// Copyright 2025 The peermgr authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package configgen

import (
	"strings"
	"text/template"

	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/pkg/private/serrors"
)

// Renderer turns a template body and a Context into configuration text.
type Renderer interface {
	Render(body string, data any) (string, error)
}

// TemplateRenderer renders with text/template. Any parse or execution
// failure, including references to fields the context does not have, is
// reported as a render error.
type TemplateRenderer struct{}

// Render implements Renderer.
func (TemplateRenderer) Render(body string, data any) (string, error) {
	tmpl, err := template.New("config").Option("missingkey=error").Parse(body)
	if err != nil {
		return "", serrors.JoinNoStack(peering.ErrRender, err,
			"reason", "parse")
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, data); err != nil {
		return "", serrors.JoinNoStack(peering.ErrRender, err,
			"reason", "execute")
	}
	return out.String(), nil
}
