package main

import (
	"fmt"

	_ "github.com/pgclosets/go-common/abtest"
	_ "github.com/pgclosets/go-common/cache"
	_ "github.com/pgclosets/go-common/eventing"
	_ "github.com/pgclosets/go-common/kv"
	_ "github.com/pgclosets/go-common/logger"
)

func main() {
	fmt.Println("Hi")
}
