package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyWriter_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	writer := newReplyWriter(&buf)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := writer.write(outboundReply{
				ScopeID: fmt.Sprintf("g%d", i),
				Outcome: "sent",
				Segments: []outboundSegment{
					{Content: fmt.Sprintf("reply %d <html>&", i)},
				},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Every line must be one complete, valid JSON reply: interleaved
	// output from racing handlers would corrupt the stream.
	seen := 0
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var reply outboundReply
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &reply))
		require.Len(t, reply.Segments, 1)
		seen++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, n, seen)
}

func TestReplyWriter_NoHTMLEscaping(t *testing.T) {
	var buf bytes.Buffer
	writer := newReplyWriter(&buf)

	require.NoError(t, writer.write(outboundReply{
		ScopeID:  "g1",
		Outcome:  "sent",
		Segments: []outboundSegment{{Content: `回复里有 <|wait time="1"|> 标签`}},
	}))
	assert.Contains(t, buf.String(), `<|wait time=`)
	assert.NotContains(t, buf.String(), `<`)
}
