/*
Package consensus 实现DPoS的锻造循环。

时间被切成等长的slot，每个slot由活跃委托人名单轮转出一个锻造者。
锻造者从mempool打包一个区块并广播，其余活跃委托人验证后countersign，
签名达到法定数量的区块才会被区块执行器提交上链。

锻造循环的状态机：

	+-------------------------------------+
	|                                     |
	|            +-----------+            |
	|            |  CatchUp  |  向网络补齐本地缺失的区块，
	|            +-----+-----+  必要时快进forging密钥序号
	|                  |                  |
	|                  v                  |
	|            +-----------+            |
	|            | WaitSlot  |  睡到下一个slot边界
	|            +-----+-----+            |
	|                  |                  |
	|                  v                  |
	|            +-----------+            |
	|      +-----+   Forge   |  轮到自己就锻造并广播，
	|      |     +-----+-----+  否则等锻造者的区块到达
	|      |           |                  |
	|      | timeout   v                  |
	|      |    +-------------+           |
	|      +----+ CollectSigs |  本地委托人countersign，
	|      |    +------+------+  等签名到齐法定数量
	|      |           |                  |
	|      | timeout   v                  |
	|      |    +-----------+             |
	|      |    |  Process  |  提交区块，或对交易太少的
	|      |    +-----+-----+  区块通告一个skipBlock
	|      |          |                   |
	|      +----------+-------------------+
	|                                     |
	+-------------------------------------+

区块和签名从reactor进入peerMsgQueue，由receiveRoutine串行消化；
锻造循环自己产出的区块和签名不走队列，同步走一样的验证管道，
这样无论消息来自本地还是peer，admit语义完全一致。

同一slot时间戳出现第二个不同区块即double forge：先到的保留，
后到的只向网络转发一次作为告发，本地委托人此后拒绝为该时间戳
的任何区块签名。

Syncer在启动时和每个slot开始前把本地账本追到网络最新高度。
追链拉回的区块依靠随块持久化的签名证明合法性，不重新收集。
*/
package consensus
