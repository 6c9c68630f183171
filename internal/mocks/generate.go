package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Store --dir ../domain/league --output domain/league --outpkg leaguemock --filename store_mock.go
