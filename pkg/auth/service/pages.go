// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"html/template"
	"net/http"

	"github.com/stacklok/mxcp-auth/pkg/logger"
)

// User-facing messages. Provider codes and internal errors only go to logs.
const (
	msgSignInAgain      = "Please try signing in again."
	msgInvalidRequest   = "The sign-in request is missing required parameters."
	msgInvalidState     = "The sign-in request is invalid or has expired."
	msgProviderRejected = "The identity provider rejected the sign-in."
	msgProviderDown     = "The identity provider could not be reached."
	msgInternal         = "Something went wrong while completing the sign-in."
)

var errorPage = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Sign-in failed</title>
</head>
<body>
<h1>Sign-in failed</h1>
<p>{{.Message}}</p>
{{if .Detail}}<p>{{.Detail}}</p>{{end}}
<p>` + msgSignInAgain + `</p>
</body>
</html>
`))

// renderError writes an HTML failure page. detail is shown escaped and must
// only carry text that is safe for the end user.
func renderError(w http.ResponseWriter, status int, message, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := errorPage.Execute(w, struct{ Message, Detail string }{message, detail}); err != nil {
		logger.Warnw("failed to render error page", "error", err)
	}
}
