package service

import "context"

type testTxRepos struct {
	documents     DocumentRepositoryInterface
	chunks        ChunkRepositoryInterface
	conversations ConversationRepositoryInterface
}

func (t *testTxRepos) Documents() DocumentRepositoryInterface {
	return t.documents
}

func (t *testTxRepos) Chunks() ChunkRepositoryInterface {
	return t.chunks
}

func (t *testTxRepos) Conversations() ConversationRepositoryInterface {
	return t.conversations
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
	err    error
}

// WithTx runs fn against the test repositories. A non-nil err simulates a
// failed commit after fn succeeds.
func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	if err := fn(t.repos); err != nil {
		return err
	}
	return t.err
}
