package mocks

//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name Repository --dir ../domain/livematch --output domain/livematch --outpkg livematchmock --filename repository_mock.go
//go:generate go run github.com/vektra/mockery/v2@v2.53.5 --name FeedFetcher --dir ../usecase --output usecase --outpkg usecasemock --filename feed_fetcher_mock.go
