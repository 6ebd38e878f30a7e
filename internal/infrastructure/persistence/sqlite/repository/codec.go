package repository

import (
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"

	"hazardsync/internal/domain/hazard"
	"hazardsync/internal/errs"
)

const (
	changeFeedName   = "hazard_reports"
	recordHandleType = "HazardReport"
)

// changeCursor is the decoded form of a change token.
type changeCursor struct {
	Feed string `codec:"f"`
	Seq  uint64 `codec:"s"`
}

// recordHandle is the decoded form of a RemoteRecordHandle.
type recordHandle struct {
	Type    string `codec:"t"`
	ID      string `codec:"i"`
	Version uint64 `codec:"v"`
}

var errForeignHandle = errors.New("record handle belongs to another record type")

func encodeMsgpack(v any) ([]byte, error) {
	var (
		encoded []byte
		mh      codec.MsgpackHandle
	)
	if err := codec.NewEncoderBytes(&encoded, &mh).Encode(v); err != nil {
		return nil, errs.Mark(errs.Wrapf(err, "encode %T", v), errs.ErrEncoding)
	}
	return encoded, nil
}

func decodeMsgpack(data []byte, v any) error {
	var mh codec.MsgpackHandle
	if err := codec.NewDecoderBytes(data, &mh).Decode(v); err != nil {
		return errs.Mark(errs.Wrapf(err, "decode %T", v), errs.ErrEncoding)
	}
	return nil
}

func encodeCursor(seq uint64) (hazard.Token, error) {
	encoded, err := encodeMsgpack(changeCursor{Feed: changeFeedName, Seq: seq})
	if err != nil {
		return nil, err
	}
	return hazard.Token(encoded), nil
}

func decodeCursor(token hazard.Token) (changeCursor, error) {
	if token.IsEmpty() {
		return changeCursor{Feed: changeFeedName}, nil
	}
	var cursor changeCursor
	if err := decodeMsgpack(token, &cursor); err != nil {
		return changeCursor{}, err
	}
	if cursor.Feed != changeFeedName {
		return changeCursor{}, errs.Mark(fmt.Errorf("token belongs to feed %q", cursor.Feed), errs.ErrEncoding)
	}
	return cursor, nil
}

func encodeHandle(id string, version uint64) (hazard.RemoteRecordHandle, error) {
	encoded, err := encodeMsgpack(recordHandle{Type: recordHandleType, ID: id, Version: version})
	if err != nil {
		return nil, err
	}
	return hazard.RemoteRecordHandle(encoded), nil
}

func decodeHandle(handle hazard.RemoteRecordHandle) (recordHandle, error) {
	var decoded recordHandle
	if err := decodeMsgpack(handle, &decoded); err != nil {
		return recordHandle{}, err
	}
	if decoded.Type != recordHandleType {
		return recordHandle{}, errs.Mark(fmt.Errorf("%w: %q", errForeignHandle, decoded.Type), errs.ErrEncoding)
	}
	return decoded, nil
}
