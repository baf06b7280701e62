//go:build ignore

// Package main generates a synthetic guide corpus for load testing.
// Usage: go run scripts/generate-test-corpus.go -docs 5000 -output testdata/corpus.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

var (
	numDocs = flag.Int("docs", 5000, "Number of documents to generate")
	output  = flag.String("output", "testdata/corpus.jsonl", "Output JSONL path")
	seed    = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var classes = []string{
	"엘븐나이트", "버서커(남)", "소드마스터", "뮤즈", "트렌드세터",
	"아수라", "크루세이더(여)", "레인저(남)", "스핏파이어(여)", "엘레멘탈마스터",
}

var topics = []string{
	"스킬 트리 정리", "장비 세팅 가이드", "명성 올리는 방법", "레기온 공략",
	"에픽 졸업 세팅", "시로코 융합 순서", "버퍼 스위칭 장비", "커스텀 옵션 추천",
	"개편 후 딜사이클", "무기 선택 비교",
}

type metadata struct {
	Title        string `json:"title,omitempty"`
	ClassName    string `json:"class_name,omitempty"`
	QualityScore string `json:"quality_score,omitempty"`
	Views        string `json:"views,omitempty"`
	Likes        string `json:"likes,omitempty"`
	URL          string `json:"url,omitempty"`
}

type document struct {
	ID       string   `json:"doc_id"`
	Content  string   `json:"content"`
	Metadata metadata `json:"metadata"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	f, err := os.Create(*output)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := 0; i < *numDocs; i++ {
		class := classes[rng.Intn(len(classes))]
		topic := topics[rng.Intn(len(topics))]
		doc := document{
			ID:      fmt.Sprintf("doc_%06d", i),
			Content: fmt.Sprintf("%s %s. 본문 단락 %d번. 세부 수치는 레벨과 명성에 따라 달라집니다.", class, topic, i),
			Metadata: metadata{
				Title:        fmt.Sprintf("%s %s", class, topic),
				ClassName:    class,
				QualityScore: fmt.Sprintf("%.1f", 5+rng.Float64()*5),
				Views:        fmt.Sprintf("%d", rng.Intn(50000)),
				Likes:        fmt.Sprintf("%d", rng.Intn(2000)),
				URL:          fmt.Sprintf("https://example.com/guide/%d", i),
			},
		}
		if err := enc.Encode(doc); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d documents to %s\n", *numDocs, *output)
}
