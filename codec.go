package goparallel

import (
	"bytes"
	"encoding/gob"
)

// Job is the serialized pair (registered function name, positional
// arguments) sent to a worker. A Job is consumed exactly once by exactly one
// worker.
type Job struct {
	FuncName string
	Args     []any
}

// Result is the tagged outcome of running a Job inside a worker: either the
// returned value (Ok) or the captured error (Err, non-nil).
type Result struct {
	Value any
	Err   *RemoteError
}

// Unwrap returns the value, or the error if the job failed.
func (r Result) Unwrap() (any, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Value, nil
}

// Codec is the black-box serialization boundary between the host and a
// worker. A Job or Result crossing it must be round-trippable; this package
// treats the codec as an external, swappable collaborator.
type Codec interface {
	EncodeJob(Job) ([]byte, error)
	DecodeJob([]byte) (Job, error)
	EncodeResult(Result) ([]byte, error)
	DecodeResult([]byte) (Result, error)
}

// gobCodec is the default Codec, built on encoding/gob. Values carried in
// Job.Args or Result.Value must be registered with [gob.Register] by the
// caller if they are not of a type gob already knows how to encode as an
// interface value.
type gobCodec struct{}

// DefaultCodec is the Codec used when a [Scope] does not specify one.
var DefaultCodec Codec = gobCodec{}

func (gobCodec) EncodeJob(j Job) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(j); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) DecodeJob(b []byte) (Job, error) {
	var j Job
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&j); err != nil {
		return Job{}, err
	}
	return j, nil
}

func (gobCodec) EncodeResult(r Result) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) DecodeResult(b []byte) (Result, error) {
	var r Result
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&r); err != nil {
		return Result{}, err
	}
	return r, nil
}
