package export

import (
	"math/rand"
	"regexp"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
)

const DefaultName = "frame_%ms%"

var (
	reDate = regexp.MustCompile(`%date:(.*?)%`)
	reMode = regexp.MustCompile(`%mode%`)
	reRand = regexp.MustCompile(`%rand:(\d+)%`)
	reUid  = regexp.MustCompile(`%uid%`)
	reMs   = regexp.MustCompile(`%ms%`)
)

// ParseName expands a file name template.
//
//	%date:<go layout>%  capture time
//	%ms%                capture time in unix milliseconds
//	%mode%              processing mode
//	%rand:<n>%          n random letters
//	%uid%               random UUID
func ParseName(name, mode string, at time.Time) (out string) {
	if name == "" {
		name = DefaultName
	}
	if d := reDate.FindStringSubmatch(name); d != nil {
		out = reDate.ReplaceAllString(name, at.Format(d[1]))
	} else {
		out = name
	}
	if rnd := reRand.FindStringSubmatch(out); rnd != nil {
		out = reRand.ReplaceAllString(out, random(rnd[1]))
	}
	if reUid.MatchString(out) {
		out = reUid.ReplaceAllString(out, newUid())
	}
	out = reMs.ReplaceAllString(out, strconv.FormatInt(at.UnixMilli(), 10))
	out = reMode.ReplaceAllString(out, mode)
	return
}

func newUid() string {
	id, err := uuid.NewV4()
	if err != nil {
		return random("16")
	}
	return id.String()
}

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func random(num string) string {
	n, err := strconv.Atoi(num)
	if err != nil {
		return ""
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[rand.Int63()%int64(len(letterBytes))]
	}
	return string(b)
}
