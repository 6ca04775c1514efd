package httpapi

import (
	"io"
	"mime"
	"net/http"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/turnstile/internal/turnstile/types"
)

// maxRequestBody caps scan bodies in either encoding. A scan carries three
// short strings, so 4 KiB is generous.
const maxRequestBody = 4096

// isProtobuf reports whether the scan body is a protobuf-encoded
// google.protobuf.Struct. Readers send "application/x-protobuf".
func isProtobuf(r *http.Request) bool {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return ct == "application/x-protobuf" ||
		ct == "application/protobuf" ||
		ct == "application/octet-stream"
}

// readProto reads the request body and unmarshals it into msg.
func readProto(r *http.Request, msg proto.Message) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	return proto.Unmarshal(body, msg)
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func scanRequestFromStruct(s *structpb.Struct) types.ScanRequest {
	f := s.GetFields()
	return types.ScanRequest{
		StudentID:    f["student_id"].GetStringValue(),
		CredentialID: f["rfid_uid"].GetStringValue(),
		Action:       f["action"].GetStringValue(),
	}
}

func scanResponseToStruct(r types.ScanResponse) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"status":  structpb.NewStringValue(r.Status),
		"message": structpb.NewStringValue(r.Message),
	}}
}

func errorToStruct(code, msg string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"status":  structpb.NewStringValue("error"),
		"code":    structpb.NewStringValue(code),
		"message": structpb.NewStringValue(msg),
	}}
}
