package internal

import "github.com/dgrijalva/jwt-go"

func Parse(s string) {
	jwt.Parse(s, nil
}
