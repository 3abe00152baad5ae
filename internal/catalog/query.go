package catalog

import (
	"strconv"
	"strings"
)

func gamesByIDQuery(ids []int64) string {
	var b strings.Builder
	b.WriteString("fields *; where id = (")
	writeInts(&b, ids)
	b.WriteString("); limit ")
	b.WriteString(strconv.Itoa(len(ids)))
	b.WriteString(";")
	return b.String()
}

func externalByUIDQuery(category int, uids []string) string {
	var b strings.Builder
	b.WriteString("fields *; where category = ")
	b.WriteString(strconv.Itoa(category))
	b.WriteString(" & uid = (")
	for i, uid := range uids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quote(uid))
	}
	b.WriteString("); sort id asc; limit ")
	// A uid can map to more than one record.
	b.WriteString(strconv.Itoa(min(len(uids)*2, maxPageSize)))
	b.WriteString(";")
	return b.String()
}

func searchQuery(title string, platforms []int64, limit int) string {
	var b strings.Builder
	b.WriteString("search ")
	b.WriteString(quote(title))
	b.WriteString("; fields *;")
	if len(platforms) > 0 {
		b.WriteString(" where platforms = (")
		writeInts(&b, platforms)
		b.WriteString(");")
	}
	b.WriteString(" limit ")
	b.WriteString(strconv.Itoa(limit))
	b.WriteString(";")
	return b.String()
}

func writeInts(b *strings.Builder, values []int64) {
	for i, v := range values {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(v, 10))
	}
}

func quote(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value)
	return `"` + escaped + `"`
}
