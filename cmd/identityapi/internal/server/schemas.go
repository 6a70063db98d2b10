package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

const schemaBaseURL = "https://identityapi.local/schemas/"

// Request body schema names.
const (
	schemaCreateUser         = "create_user.json"
	schemaUpdateUser         = "update_user.json"
	schemaCreateOrganization = "create_organization.json"
	schemaUpdateOrganization = "update_organization.json"
	schemaUpdateImage        = "update_image.json"
	schemaRole               = "role.json"
	schemaRolePermissions    = "role_permissions.json"
	schemaCreateInvitation   = "create_invitation.json"
	schemaInvitationToken    = "invitation_token.json"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// SchemaSet holds the compiled request body schemas.
type SchemaSet struct {
	schemas map[string]*jsonschema.Schema
}

// CompileSchemas compiles every embedded schema once.
func CompileSchemas() (*SchemaSet, error) {
	entries, err := fs.ReadDir(schemaFiles, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	for _, entry := range entries {
		raw, err := schemaFiles.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(schemaBaseURL+entry.Name(), doc); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", entry.Name(), err)
		}
	}

	set := &SchemaSet{schemas: make(map[string]*jsonschema.Schema, len(entries))}
	for _, entry := range entries {
		schema, err := compiler.Compile(schemaBaseURL + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", entry.Name(), err)
		}
		set.schemas[entry.Name()] = schema
	}
	return set, nil
}

// requestError is a malformed or schema-violating body.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

// Decode reads r's body, validates it against the named schema and decodes
// it into dst.
func (s *SchemaSet) Decode(r *http.Request, name string, dst any) error {
	schema, ok := s.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %s", name)
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return &requestError{msg: fmt.Sprintf("failed to read request body: %v", err)}
	}
	defer r.Body.Close()

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return &requestError{msg: "request body must be valid JSON"}
	}
	if err := schema.Validate(doc); err != nil {
		return &requestError{msg: formatSchemaError(err)}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &requestError{msg: fmt.Sprintf("decode request body: %v", err)}
	}
	return nil
}

// formatSchemaError renders a validation failure with the JSON path of the
// first failing leaf.
func formatSchemaError(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}

	var parts []string
	for _, part := range leaf.InstanceLocation {
		if part != "" {
			parts = append(parts, part)
		}
	}
	path := "$"
	if len(parts) > 0 {
		path = "$." + strings.Join(parts, ".")
	}

	msg := ve.Error()
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return fmt.Sprintf("invalid request body at %s: %s", path, msg)
}
