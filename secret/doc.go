// Package secret resolves secret references in configuration values.
//
// A value of the form "secretref:<provider>:<ref>" is replaced by what the
// named provider returns for ref. Two providers are built in:
//   - env:  secretref:env:JWT_SIGNING_KEY reads another environment variable
//   - file: secretref:file:/run/secrets/jwt reads a mounted secret file
//
// The reference part is expanded strictly (see ExpandEnvStrict). Values
// that are not references are returned unchanged, so literal secrets may
// contain "$".
package secret
