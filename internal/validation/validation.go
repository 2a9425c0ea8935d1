// Package validation はサインアップ・サインインの入力値をJSON Schemaで検証する。
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/hitoshi/authflow/internal/model"
)

// emailPattern はformat: emailに加えて、ドット区切りのドメインと2文字以上のTLDを要求する。
// 引用符付きローカル部とIPリテラルは受け付けない。
const emailPattern = `^[A-Za-z0-9_'+.-]*[A-Za-z0-9_+-]@([A-Za-z0-9][A-Za-z0-9-]*\\.)+[A-Za-z]{2,}$`

const signUpSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "username": {"type": "string", "minLength": 3},
    "email": {"type": "string", "format": "email", "pattern": "` + emailPattern + `"},
    "password": {"type": "string", "minLength": 8}
  },
  "required": ["username", "email", "password"]
}`

const signInSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "email": {"type": "string", "format": "email", "pattern": "` + emailPattern + `"},
    "password": {"type": "string", "minLength": 1}
  },
  "required": ["email", "password"]
}`

// フィールドごとのエラーメッセージ
var fieldMessages = map[string]string{
	"username": "String must contain at least 3 character(s)",
	"email":    "Invalid email",
	"password": "String must contain at least 8 character(s)",
}

var signInFieldMessages = map[string]string{
	"email":    "Invalid email",
	"password": "Password is required",
}

// FieldErrors はフィールド名からエラーメッセージへの対応を保持する。
// 空であれば入力は有効。
type FieldErrors map[string]string

// Valid は検証エラーがないかを返す。
func (fe FieldErrors) Valid() bool {
	return len(fe) == 0
}

// Error はフィールド名順に連結したメッセージを返す。
func (fe FieldErrors) Error() string {
	fields := make([]string, 0, len(fe))
	for f := range fe {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, fe[f]))
	}
	return strings.Join(parts, "; ")
}

var (
	compileOnce  sync.Once
	signUpSchema *jschema.Schema
	signInSchema *jschema.Schema
	compileErr   error
)

func compileSchemas() error {
	compileOnce.Do(func() {
		signUpSchema, compileErr = compile("signup.json", signUpSchemaJSON)
		if compileErr != nil {
			return
		}
		signInSchema, compileErr = compile("signin.json", signInSchemaJSON)
	})
	return compileErr
}

func compile(name, src string) (*jschema.Schema, error) {
	doc, err := jschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", name, err)
	}

	c := jschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
	}

	sch, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return sch, nil
}

// ValidateSignUp はサインアップ入力（username, email, password）を検証する。
func ValidateSignUp(creds model.Credentials) FieldErrors {
	if err := compileSchemas(); err != nil {
		// 埋め込みスキーマのコンパイル失敗はプログラムの誤り
		panic(err)
	}
	return validate(signUpSchema, map[string]any{
		"username": creds.Username,
		"email":    creds.Email,
		"password": creds.Password,
	}, fieldMessages)
}

// ValidateSignIn はサインイン入力（email, password）を検証する。
func ValidateSignIn(creds model.Credentials) FieldErrors {
	if err := compileSchemas(); err != nil {
		panic(err)
	}
	return validate(signInSchema, map[string]any{
		"email":    creds.Email,
		"password": creds.Password,
	}, signInFieldMessages)
}

func validate(sch *jschema.Schema, instance map[string]any, messages map[string]string) FieldErrors {
	fe := FieldErrors{}

	if err := sch.Validate(instance); err != nil {
		var verr *jschema.ValidationError
		if !errors.As(err, &verr) {
			fe["_"] = err.Error()
			return fe
		}
		collectFieldErrors(verr, messages, fe)
	}
	return fe
}

// collectFieldErrors は検証エラーツリーの葉からフィールド名を取り出す。
func collectFieldErrors(verr *jschema.ValidationError, messages map[string]string, fe FieldErrors) {
	if len(verr.Causes) == 0 {
		if len(verr.InstanceLocation) == 0 {
			return
		}
		field := verr.InstanceLocation[0]
		if _, exists := fe[field]; exists {
			return
		}
		if msg, ok := messages[field]; ok {
			fe[field] = msg
		} else {
			fe[field] = "Invalid value"
		}
		return
	}
	for _, cause := range verr.Causes {
		collectFieldErrors(cause, messages, fe)
	}
}
