package utils

import (
	"bytes"
	"fmt"
	"runtime"

	"github.com/speps/go-hashids/v2"
)

func PanicTrace(err interface{}) string {
	buf := new(bytes.Buffer)
	fmt.Fprintf(buf, "%v\n", err)
	for i := 2; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fmt.Fprintf(buf, "%s:%d (0x%x)\n", file, line, pc)
	}
	return buf.String()
}

// GenHashID 对外展示用的编号，不暴露自增 id
func GenHashID(salt string, id uint64) string {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 12
	h, _ := hashids.NewWithData(hd)
	e, _ := h.EncodeInt64([]int64{int64(id)})
	return e
}

// DecodeHashID GenHashID 的逆操作
func DecodeHashID(salt, hash string) (uint64, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 12
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return 0, err
	}
	ids, err := h.DecodeInt64WithError(hash)
	if err != nil {
		return 0, err
	}
	if len(ids) != 1 || ids[0] <= 0 {
		return 0, fmt.Errorf("invalid hash id %q", hash)
	}
	return uint64(ids[0]), nil
}
