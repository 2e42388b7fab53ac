package gka

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// deterministic encoding keeps signatures and key package references
	// stable across implementations
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

func marshal(v interface{}) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v interface{}) error {
	return decMode.Unmarshal(data, v)
}
