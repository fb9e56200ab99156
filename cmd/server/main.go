package main

import "github.com/keepintouch/backend/app"

func main() {
	app.New(nil).Run()
}
