package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/dukerupert/listio/internal/model"
)

func TestDecodeListShapes(t *testing.T) {
	cases := map[string]string{
		"bare":  `[{"id":1,"name":"a"},{"id":2,"name":"b"}]`,
		"data":  `{"data":[{"id":1,"name":"a"},{"id":2,"name":"b"}],"meta":{"page":1,"total":2}}`,
		"items": `{"items":[{"id":1,"name":"a"},{"id":2,"name":"b"}],"meta":{"page":1,"total":2}}`,
	}
	for name, body := range cases {
		page, err := DecodeList[model.Category](json.RawMessage(body))
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(page.Items) != 2 || page.Items[1].ID != "2" {
			t.Errorf("%s: items = %+v", name, page.Items)
		}
		if name != "bare" && (page.Meta == nil || page.Meta.Total != 2) {
			t.Errorf("%s: meta = %+v", name, page.Meta)
		}
	}
}

func TestDecodeListRejectsUnknownShapes(t *testing.T) {
	for _, body := range []string{``, `null`, `{"results":[]}`, `"text"`, `{"data":{"id":1}}`} {
		_, err := DecodeList[model.Category](json.RawMessage(body))
		if !errors.Is(err, ErrUnrecognizedEnvelope) {
			t.Errorf("%q: err = %v, want ErrUnrecognizedEnvelope", body, err)
		}
	}
}

func TestDecodeOne(t *testing.T) {
	p, err := DecodeOne[model.Product](json.RawMessage(`{"data":{"id":101,"name":"Milk"}}`))
	if err != nil || p.ID != "101" || p.Name != "Milk" {
		t.Errorf("wrapped: %+v, %v", p, err)
	}

	p, err = DecodeOne[model.Product](json.RawMessage(`{"id":101,"name":"Milk","category":{"id":5,"name":"Dairy"}}`))
	if err != nil || p.Category == nil || p.Category.Name != "Dairy" {
		t.Errorf("bare: %+v, %v", p, err)
	}

	if _, err := DecodeOne[model.Product](json.RawMessage(`[]`)); !errors.Is(err, ErrUnrecognizedEnvelope) {
		t.Errorf("array: err = %v", err)
	}
}

func TestDecodeOptional(t *testing.T) {
	_, ok, err := decodeOptional[model.List](nil)
	if ok || err != nil {
		t.Errorf("nil body: ok=%v err=%v", ok, err)
	}
	l, ok, err := decodeOptional[model.List](json.RawMessage(`{"id":3,"name":"Weekly"}`))
	if !ok || err != nil || l.Name != "Weekly" {
		t.Errorf("object: %+v ok=%v err=%v", l, ok, err)
	}
}
