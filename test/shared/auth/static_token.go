/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package auth provides an http.RoundTripper that injects a static bearer
// token, used by test harnesses that talk to a real HTTP endpoint guarded
// by token auth (the LLM provider clients in pkg/llm use the production
// equivalent backed by golang.org/x/oauth2).
package auth

import "net/http"

// StaticTokenTransport injects "Authorization: Bearer <token>" into every
// request, leaving the original request untouched.
type StaticTokenTransport struct {
	token string
	base  http.RoundTripper
}

// NewStaticTokenTransport wraps http.DefaultTransport.
func NewStaticTokenTransport(token string) *StaticTokenTransport {
	return NewStaticTokenTransportWithBase(token, nil)
}

// NewStaticTokenTransportWithBase wraps base, or http.DefaultTransport if
// base is nil.
func NewStaticTokenTransportWithBase(token string, base http.RoundTripper) *StaticTokenTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &StaticTokenTransport{token: token, base: base}
}

func (t *StaticTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token == "" {
		return t.base.RoundTrip(req)
	}

	cloned := req.Clone(req.Context())
	cloned.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(cloned)
}
