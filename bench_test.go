package main

import (
	"fmt"
	"testing"

	"github.com/SkynetNext/serverinfo-rest/internal/cache"
	"github.com/SkynetNext/serverinfo-rest/internal/protocol"
)

func BenchmarkCache_ReadWhileWriting(b *testing.B) {
	c := cache.NewPlayerCache()
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("x%d", i)
		c.Upsert(key, cache.PlayerInfo{XUID: key, Name: fmt.Sprintf("player%d", i)})
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			switch i % 4 {
			case 0:
				c.Upsert("x42", cache.PlayerInfo{XUID: "x42", Name: "player42"})
			case 1:
				c.FindByName("player99")
			default:
				c.Snapshot()
			}
			i++
		}
	})
}

func BenchmarkDecodeEncode(b *testing.B) {
	raw := []byte("GET /api/v1/player?name=Alice&token=secret HTTP/1.1\r\n" +
		"Host: localhost:60202\r\nUser-Agent: bench\r\nAccept: */*\r\n\r\n")

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := protocol.Decode(raw)
		if _, ok := req.Param("name"); !ok {
			b.Fatal("name not parsed")
		}
		resp := protocol.NewResponse()
		resp.Error(404, "Player not found")
		_ = resp.Encode()
	}
}
