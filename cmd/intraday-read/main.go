package main

import (
	"bufio"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"time"

	"intraday/internal/domain"
)

// intraday-read dumps a merged binary artifact as one line per record.
// Each record is 20 bytes little-endian: timestamp (int32 epoch seconds),
// right (0=call 1=put), side (0=bid 1=ask), price (float32), strike (int32).
func main() {
	limit := flag.Int("n", 0, "print at most n records (0 = all)")
	raw := flag.Bool("raw", false, "print epoch seconds instead of local time")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [-n count] [-raw] <artifact.bin>\n", os.Args[0])
		os.Exit(2)
	}

	f, err := os.Open(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	buf := make([]byte, 20)
	for n := 0; *limit == 0 || n < *limit; n++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF {
				break
			}
			log.Fatalf("record %d: %v", n, err)
		}
		ts := int32(binary.LittleEndian.Uint32(buf[0:4]))
		right := domain.RightFromCode(int32(binary.LittleEndian.Uint32(buf[4:8])))
		side := domain.SideFromCode(int32(binary.LittleEndian.Uint32(buf[8:12])))
		price := math.Float32frombits(binary.LittleEndian.Uint32(buf[12:16]))
		strike := int32(binary.LittleEndian.Uint32(buf[16:20]))

		when := fmt.Sprintf("%d", ts)
		if !*raw {
			when = time.Unix(int64(ts), 0).Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s %d%s %s %.2f\n", when, strike, right, side, price)
	}
}
