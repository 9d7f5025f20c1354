package validators

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	pkgerrors "github.com/angelmondragon/gearledger-backend/pkg/errors"
)

// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 1 << 20

var errEmptyBody = errors.New("empty body")

// DecodeJSONBody decodes exactly one JSON object into dest, rejecting unknown
// fields, then applies the validate tags.
func DecodeJSONBody(r *http.Request, dest any) error {
	if err := decode(r, dest); err != nil {
		if errors.Is(err, errEmptyBody) {
			return pkgerrors.New(pkgerrors.CodeValidation, "request body is required")
		}
		return err
	}
	return Struct(dest)
}

// DecodeOptionalJSONBody is DecodeJSONBody for endpoints where the body may
// be omitted. An empty body leaves dest untouched.
func DecodeOptionalJSONBody(r *http.Request, dest any) error {
	if err := decode(r, dest); err != nil {
		if errors.Is(err, errEmptyBody) {
			return nil
		}
		return err
	}
	return Struct(dest)
}

func decode(r *http.Request, dest any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}
	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	defer func() {
		_, _ = io.Copy(io.Discard, body)
	}()

	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errEmptyBody
		case errors.As(err, &tooLarge):
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("request body exceeds %d bytes", MaxBodyBytes))
		}
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body").WithDetails(map[string]any{"error": err.Error()})
	}
	if decoder.More() {
		return pkgerrors.New(pkgerrors.CodeValidation, "request body must contain a single JSON object")
	}
	return nil
}
