package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"golang.org/x/net/html"
	yaml "gopkg.in/yaml.v2"
)

var _ html.Token

func main() {
	r := gin.Default()
	var v map[string]any
	_ = yaml.Unmarshal([]byte("a: 1"), &v)
	fmt.Println(r, v)
}
